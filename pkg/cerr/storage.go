package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/agentguild/pkg/storage"
)

func WrapStorageReadError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, target+" not found", err)
	}
	return NewError(Internal, "server error", fmt.Errorf("read %s: %w", target, err))
}

func WrapStorageWriteError(target string, err error) error {
	return NewError(Internal, "server error", fmt.Errorf("write %s: %w", target, err))
}

func WrapStorageDeleteError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, target+" not found", err)
	}
	return NewError(Internal, "server error", fmt.Errorf("delete %s: %w", target, err))
}

// WrapMarshalError reports an encode/decode failure of a persisted record.
func WrapMarshalError(target string, err error) error {
	return NewError(Internal, "server error", fmt.Errorf("encode %s: %w", target, err))
}
