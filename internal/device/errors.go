package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrCatalogUnavailable) {
//	    // startup cannot continue
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not in the catalog.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrCatalogUnavailable is returned when the catalog could not be fetched.
	ErrCatalogUnavailable = errors.New("device: catalog unavailable")

	// ErrCatalogMalformed is returned when the catalog response cannot be decoded.
	ErrCatalogMalformed = errors.New("device: catalog malformed")
)
