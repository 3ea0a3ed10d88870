package provision

import (
	"context"
	"sort"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/storage"
)

// RejectedReport lists the rejected-record report objects under prefix and,
// when a downloader is supplied, fetches them.
type RejectedReport struct {
	Prefix     string
	Objects    []storage.ObjectInfo
	TotalBytes int64
	// LocalPaths maps keys to downloaded files. Nil when nothing was fetched.
	LocalPaths map[string]string
	// Failed maps keys to download errors.
	Failed map[string]error
}

// ListRejected builds a RejectedReport from store. dl may be nil.
func ListRejected(ctx context.Context, store storage.ObjectStorage, prefix string, dl *storage.BatchDownloader) (*RejectedReport, error) {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, apperrors.NewStorageError(apperrors.CodeDownloadFailed, "failed to list rejected-record reports", err).
			WithDetails(map[string]interface{}{"prefix": prefix})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	report := &RejectedReport{Prefix: prefix, Objects: objects}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		report.TotalBytes += obj.Size
		keys[i] = obj.Key
	}

	if dl == nil || len(keys) == 0 {
		return report, nil
	}
	res, err := dl.Download(ctx, keys)
	if err != nil {
		return report, apperrors.NewStorageError(apperrors.CodeDownloadFailed, "failed to download rejected-record reports", err)
	}
	report.LocalPaths = res.LocalPaths
	if len(res.Errors) > 0 {
		report.Failed = res.Errors
	}
	return report, nil
}
