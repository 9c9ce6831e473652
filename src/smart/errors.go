package smart

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/graph"
	"github.com/cairn-scm/cairn/src/store"
	"github.com/cairn-scm/cairn/src/transport"
)

// errBadSearch marks an unusable search recipe: undecodable, or replaying to
// a different key count than it claims. Distinct from a missing revision —
// it means client and server no longer agree on the graph.
var errBadSearch = errors.New("smart: bad search recipe")

// TranslateError converts an error raised by a verb into the failure
// response the client-side expects. Known error types map to stable named
// failures; anything else becomes a generic failure and is logged, since an
// unrecognized error usually means a server bug.
func TranslateError(logger *logrus.Entry, err error) *Response {
	switch e := err.(type) {
	case *transport.NoSuchFileError:
		return FailedResponse("NoSuchFile", e.Path)
	case *transport.FileExistsError:
		return FailedResponse("FileExists", e.Path)
	case *transport.ReadOnlyError:
		return FailedResponse("ReadOnlyError")
	case *transport.DirectoryNotEmptyError:
		return FailedResponse("DirectoryNotEmpty", e.Path)
	case *transport.PathNotChildError:
		return FailedResponse("PathNotChild", e.Path, e.Base)
	case *JailBreakError:
		return FailedResponse("JailBreak", e.Path)
	case *graph.CountMismatchError:
		return FailedResponse("BadSearch")
	case *store.Err:
		if store.Is(err, store.NoRepository) {
			return FailedResponse("norepository")
		}
	}
	if err == errBadSearch {
		return FailedResponse("BadSearch")
	}

	logger.WithError(err).Error("Request failed with untranslated error")
	return FailedResponse("error", err.Error())
}
