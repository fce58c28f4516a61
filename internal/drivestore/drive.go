// Package drivestore persists decrypted statements. Two backends implement
// the same surface: Google Drive folders for the personal setup and a GCS
// bucket for headless deployments.
package drivestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/gapierr"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveStore stores documents in Google Drive, mirroring the destination path
// as a folder hierarchy under the Drive root.
type DriveStore struct {
	svc *drive.Service
	log zerolog.Logger

	mu        sync.Mutex
	folderIDs map[string]string
}

// NewDriveStore wraps an authenticated Drive service.
func NewDriveStore(svc *drive.Service, log zerolog.Logger) *DriveStore {
	return &DriveStore{
		svc:       svc,
		log:       log,
		folderIDs: make(map[string]string),
	}
}

// Store implements workflow.StorageService. Missing folders are created on
// the way down.
func (s *DriveStore) Store(ctx context.Context, p domain.Placement, content []byte) (string, error) {
	folderID, err := s.ensureFolder(ctx, p.FolderPath)
	if err != nil {
		return "", err
	}

	file := &drive.File{
		Name:     p.FileName,
		Parents:  []string{folderID},
		MimeType: "application/pdf",
	}
	_, err = s.svc.Files.Create(file).
		Media(bytes.NewReader(content), googleapi.ContentType("application/pdf")).
		Context(ctx).Do()
	if err != nil {
		return "", gapierr.Classify("drivestore.Store: uploading file", err)
	}

	dest := path.Join(p.FolderPath, p.FileName)
	s.log.Debug().Str("destination", dest).Int("bytes", len(content)).Msg("uploaded to drive")
	return dest, nil
}

// Fetch implements workflow.StorageService, downloading one stored document
// by its destination path.
func (s *DriveStore) Fetch(ctx context.Context, destinationPath string) ([]byte, error) {
	folderID, err := s.lookupFolder(ctx, path.Dir(destinationPath))
	if err != nil {
		return nil, err
	}
	if folderID == "" {
		return nil, domain.Fatal("drivestore.Fetch", fmt.Errorf("folder %s not found", path.Dir(destinationPath)))
	}

	fileID, err := s.findChild(ctx, folderID, path.Base(destinationPath), false)
	if err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, domain.Fatal("drivestore.Fetch", fmt.Errorf("file %s not found", destinationPath))
	}

	resp, err := s.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, gapierr.Classify("drivestore.Fetch: downloading file", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Transient("drivestore.Fetch: reading body", err)
	}
	return data, nil
}

// List implements workflow.StorageService. A folder that does not exist yet
// lists as empty.
func (s *DriveStore) List(ctx context.Context, folderPath string) ([]string, error) {
	folderID, err := s.lookupFolder(ctx, folderPath)
	if err != nil {
		return nil, err
	}
	if folderID == "" {
		return nil, nil
	}

	var names []string
	pageToken := ""
	for {
		call := s.svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields("nextPageToken, files(name)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, gapierr.Classify("drivestore.List", err)
		}
		for _, f := range resp.Files {
			names = append(names, f.Name)
		}
		if resp.NextPageToken == "" {
			return names, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ensureFolder resolves a folder path to its Drive ID, creating missing
// segments. Resolved IDs are cached for the lifetime of the store.
func (s *DriveStore) ensureFolder(ctx context.Context, folderPath string) (string, error) {
	return s.resolveFolder(ctx, folderPath, true)
}

// lookupFolder resolves without creating; a missing segment yields "".
func (s *DriveStore) lookupFolder(ctx context.Context, folderPath string) (string, error) {
	return s.resolveFolder(ctx, folderPath, false)
}

func (s *DriveStore) resolveFolder(ctx context.Context, folderPath string, create bool) (string, error) {
	s.mu.Lock()
	if id, ok := s.folderIDs[folderPath]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	parentID := "root"
	walked := ""
	for _, segment := range strings.Split(folderPath, "/") {
		if segment == "" {
			continue
		}
		walked = path.Join(walked, segment)

		s.mu.Lock()
		cached, ok := s.folderIDs[walked]
		s.mu.Unlock()
		if ok {
			parentID = cached
			continue
		}

		id, err := s.findChild(ctx, parentID, segment, true)
		if err != nil {
			return "", err
		}
		if id == "" {
			if !create {
				return "", nil
			}
			id, err = s.createFolder(ctx, parentID, segment)
			if err != nil {
				return "", err
			}
		}

		s.mu.Lock()
		s.folderIDs[walked] = id
		s.mu.Unlock()
		parentID = id
	}
	return parentID, nil
}

// findChild returns the ID of a named child, "" when absent.
func (s *DriveStore) findChild(ctx context.Context, parentID, name string, folder bool) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), parentID)
	if folder {
		q += fmt.Sprintf(" and mimeType = '%s'", folderMimeType)
	}
	resp, err := s.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", gapierr.Classify("drivestore.findChild", err)
	}
	if len(resp.Files) == 0 {
		return "", nil
	}
	return resp.Files[0].Id, nil
}

func (s *DriveStore) createFolder(ctx context.Context, parentID, name string) (string, error) {
	created, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", gapierr.Classify("drivestore.createFolder", err)
	}
	s.log.Info().Str("folder", name).Msg("created drive folder")
	return created.Id, nil
}

// escapeQuery escapes single quotes and backslashes for Drive search terms.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
