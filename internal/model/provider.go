// Package model defines the core domain types used throughout the merge engine.
package model

import (
	"fmt"
	"sort"
)

// Provider identifies an external organization supplying one catalog snapshot.
type Provider string

// Known providers. The set is fixed; a run designates one of them as the
// reference provider whose catalog acts as the master list.
const (
	ProviderGem              Provider = "gem"
	ProviderHaller           Provider = "haller"
	ProviderUniverse         Provider = "universe"
	ProviderWeltmanPrinceton Provider = "weltman-princeton"
)

// Providers returns every known provider in the fixed total order used for
// iteration and output-column layout.
func Providers() []Provider {
	providers := []Provider{
		ProviderGem,
		ProviderHaller,
		ProviderUniverse,
		ProviderWeltmanPrinceton,
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i] < providers[j]
	})
	return providers
}

// ParseProvider validates a provider name from config or CLI input.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	for _, known := range Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// SheetName identifies one of the two catalog sheets every provider workbook
// carries.
type SheetName string

// Catalog sheet names.
const (
	SheetEquipment SheetName = "Equipment"
	SheetMaterials SheetName = "Materials"
)

// SheetNames returns the sheets in their fixed sorted order.
func SheetNames() []SheetName {
	return []SheetName{SheetEquipment, SheetMaterials}
}

// ParseSheetName validates a sheet name read from an external payload.
func ParseSheetName(s string) (SheetName, error) {
	switch SheetName(s) {
	case SheetEquipment:
		return SheetEquipment, nil
	case SheetMaterials:
		return SheetMaterials, nil
	}
	return "", fmt.Errorf("unknown sheet name: %q", s)
}
