package entries

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/watchlog/watchlog/pkg/errcodes"
)

// Workflow steps, used to report where a submission stopped.
const (
	StepUploadImage   = "upload_image"
	StepCreateEntry   = "create_entry"
	StepLinkGenres    = "link_genres"
	StepLinkRelations = "link_relations"
)

// UploadError is returned when the image couldn't be stored and the failure
// policy is abort. No rows have been written when it's returned.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload image %q: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// WriteError is returned when a row insert fails. Unless RolledBack is set,
// everything written before the failing step is still persisted: EntryID is
// the entry that was created (zero if creation itself failed) and the link
// counts say how many associations were committed.
type WriteError struct {
	Step            string
	EntryID         int
	GenresLinked    int
	RelationsLinked int
	// Item is the genre name or related title being written when the step
	// failed.
	Item       string
	RolledBack bool
	Err        error
}

func (e *WriteError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("%s %q: %v", e.Step, e.Item, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// toHTTPError converts workflow errors into errors the echo error handler can
// render. Anything else is returned untouched.
func toHTTPError(err error) error {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return errcodes.UploadFailed()
	}
	var writeErr *WriteError
	if errors.As(err, &writeErr) {
		details := map[string]interface{}{
			"step":             writeErr.Step,
			"genres_linked":    writeErr.GenresLinked,
			"relations_linked": writeErr.RelationsLinked,
			"rolled_back":      writeErr.RolledBack,
		}
		if writeErr.EntryID != 0 && !writeErr.RolledBack {
			details["entry_id"] = writeErr.EntryID
		}
		return errcodes.WriteFailed(details)
	}
	return err
}
