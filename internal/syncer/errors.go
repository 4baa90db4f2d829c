package syncer

import "errors"

var (
	// ErrConnectionDisabled is returned for passes on a disconnected connection.
	ErrConnectionDisabled = errors.New("connection is disconnected")
	// ErrUnsupportedKind is returned for connections no provider handles.
	ErrUnsupportedKind = errors.New("unsupported connection kind")

	// Item-local failures. They are recorded on the item's mirror record and
	// never abort a pass.
	ErrItemValidation  = errors.New("item validation failed")
	ErrItemTransfer    = errors.New("item transfer failed")
	ErrItemPersistence = errors.New("item persistence failed")
)
