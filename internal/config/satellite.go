package config

import (
	"strings"

	"github.com/forest-guardian/wqindex/internal/utils"
)

// productTypes lists every product type a band source may declare, with the
// processing chain that produced it.
var productTypes = map[string]string{
	"S2_ESA_L1C":   "ESA",
	"S2_ESA_L2A":   "Sen2Cor",
	"S2_THEIA":     "MAIA",
	"S2_GRS":       "GRS",
	"S2_C2RCC":     "C2RCC",
	"L4_GRS":       "GRS",
	"L5_GRS":       "GRS",
	"L7_GRS":       "GRS",
	"L8_GRS":       "GRS",
	"L8_C2RCC":     "C2RCC",
	"L4_USGS_L1C1": "USGS-C1",
	"L5_USGS_L1C1": "USGS-C1",
	"L7_USGS_L1C1": "USGS-C1",
	"L8_USGS_L1C1": "USGS-C1",
	"L4_USGS_L2":   "LaSRC",
	"L5_USGS_L2":   "LaSRC",
	"L7_USGS_L2":   "LaSRC",
	"L8_USGS_L2":   "LaSRC",
}

func ProductTypes() []string {
	return utils.SortedKeys(productTypes)
}

func IsProductType(productType string) bool {
	_, ok := productTypes[productType]
	return ok
}

// Source returns the processing chain of a product type (e.g. "Sen2Cor" for
// S2_ESA_L2A).
func Source(productType string) (string, error) {
	source, ok := productTypes[productType]
	if !ok {
		return "", InputError("unknown product type %q", productType)
	}
	return source, nil
}

// SatelliteKey maps a product type to the key used by configuration and
// calibration tables: the "_USGS_" infix is dropped, so L8_USGS_L1C1 becomes
// L8L1C1 while S2_ESA_L2A is kept as is.
func SatelliteKey(productType string) (string, error) {
	if !IsProductType(productType) {
		return "", InputError("unknown product type %q", productType)
	}
	return strings.Replace(productType, "_USGS_", "", 1), nil
}
