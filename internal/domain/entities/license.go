package entities

// License identifies the legal terms a recipe's artifacts are distributed
// under. Values follow SPDX identifiers where one exists.
type License string

// Licenses used across the recipe tree.
const (
	LicenseApache2      License = "Apache-2.0"
	LicenseBSD2         License = "BSD-2-Clause"
	LicenseBSD3         License = "BSD-3-Clause"
	LicenseGPL2Plus     License = "GPL-2.0-or-later"
	LicenseGPL3Plus     License = "GPL-3.0-or-later"
	LicenseLGPL2Plus    License = "LGPL-2.0-or-later"
	LicenseLGPL21Plus   License = "LGPL-2.1-or-later"
	LicenseLGPL3Plus    License = "LGPL-3.0-or-later"
	LicenseMIT          License = "MIT"
	LicenseMPL2         License = "MPL-2.0"
	LicenseOpenSSL      License = "OpenSSL"
	LicenseZlib         License = "Zlib"
	LicensePublicDomain License = "public-domain"
	LicenseProprietary  License = "proprietary"
	LicenseMisc         License = "misc"
)

var knownLicenses = map[License]struct{}{
	LicenseApache2:      {},
	LicenseBSD2:         {},
	LicenseBSD3:         {},
	LicenseGPL2Plus:     {},
	LicenseGPL3Plus:     {},
	LicenseLGPL2Plus:    {},
	LicenseLGPL21Plus:   {},
	LicenseLGPL3Plus:    {},
	LicenseMIT:          {},
	LicenseMPL2:         {},
	LicenseOpenSSL:      {},
	LicenseZlib:         {},
	LicensePublicDomain: {},
	LicenseProprietary:  {},
	LicenseMisc:         {},
}

// Known reports whether l is one of the recognized identifiers.
func (l License) Known() bool {
	_, ok := knownLicenses[l]
	return ok
}
