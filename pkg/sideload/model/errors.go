package model

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidParameter = errors.New("") // Base error for invalid parameter
var ErrWrongStatus = errors.New("")
var ErrDataNotFound = errors.New("") // Base error for data not found

var ErrInvalidIdentity = fmt.Errorf("%w", ErrInvalidParameter)          // Identity container is malformed or uses an unsupported format.
var ErrIdentityExtraction = fmt.Errorf("%w", ErrInvalidParameter)       // Identity container opened but carries no leaf certificate.
var ErrProfileMetadataNotFound = fmt.Errorf("%w", ErrInvalidParameter)  // Profile has no embedded metadata block.
var ErrNoCertificatesInProfile = fmt.Errorf("%w", ErrInvalidParameter)  // Profile metadata carries zero embedded certificates.
var ErrNoUniqueBundle = fmt.Errorf("%w", ErrInvalidParameter)           // Unpacked archive has zero or ambiguous bundle roots.
var ErrJobAlreadyRunning = fmt.Errorf("job already running%w", ErrWrongStatus)
var ErrJobNotFound = fmt.Errorf("%w", ErrDataNotFound)

func ErrToHttpStatus(err error) int {
	if errors.Is(err, ErrInvalidParameter) {
		return http.StatusBadRequest
	} else if errors.Is(err, ErrDataNotFound) {
		return http.StatusNotFound
	} else if errors.Is(err, ErrWrongStatus) {
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}
