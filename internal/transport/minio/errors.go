package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/radosgo/internal/transport"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error into a *transport.StatusError.
// Errors that already carry a status pass through.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	var se *transport.StatusError
	if errors.As(err, &se) {
		return err
	}

	// Context cancellation / deadline
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transport.Errorf(transport.StatusTimedOut, op, err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		// S3 error codes are more precise than the HTTP status
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
			return transport.Errorf(transport.StatusNotFound, op, err)
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return transport.Errorf(transport.StatusExists, op, err)
		case "BucketNotEmpty":
			return transport.Errorf(transport.StatusBusy, op, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return transport.Errorf(transport.StatusPerm, op, err)
		case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
			return transport.Errorf(transport.StatusInvalid, op, err)
		case "EntityTooLarge":
			return transport.Errorf(transport.StatusTooBig, op, err)
		case "InvalidRange":
			return transport.Errorf(transport.StatusRange, op, err)
		case "RequestTimeout", "SlowDown":
			return transport.Errorf(transport.StatusTimedOut, op, err)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return transport.Errorf(transport.StatusNotFound, op, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return transport.Errorf(transport.StatusPerm, op, err)
		case http.StatusBadRequest:
			return transport.Errorf(transport.StatusInvalid, op, err)
		case http.StatusConflict:
			return transport.Errorf(transport.StatusExists, op, err)
		}
	}

	// Anything else is a connection / protocol failure
	return transport.Errorf(transport.StatusRefused, op, err)
}
