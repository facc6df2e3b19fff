package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// LocalArchiveGateway stores checkpoint exports on a filesystem.
// Layout: <baseDir>/archives/<taskID>/<archiveID>/{content,metadata.json}
type LocalArchiveGateway struct {
	fs      afero.Fs
	baseDir string
}

// NewLocalArchiveGateway creates a local archive store rooted at baseDir
func NewLocalArchiveGateway(fs afero.Fs, baseDir string) (*LocalArchiveGateway, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(filepath.Join(baseDir, "archives"), 0755); err != nil {
		return nil, fmt.Errorf("create archives directory: %w", err)
	}
	return &LocalArchiveGateway{fs: fs, baseDir: baseDir}, nil
}

// SaveArchive persists an export document and its metadata
func (g *LocalArchiveGateway) SaveArchive(ctx context.Context, req output.SaveArchiveRequest) (*output.ArchiveMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archiveID := generateArchiveID(req.Content)
	archiveDir := filepath.Join(g.baseDir, "archives", req.TaskID, archiveID)
	if err := g.fs.MkdirAll(archiveDir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	contentPath := filepath.Join(archiveDir, "content")
	if err := writeFileAtomic(g.fs, contentPath, req.Content); err != nil {
		return nil, fmt.Errorf("write archive content: %w", err)
	}

	metadata := output.ArchiveMetadata{
		ID:          archiveID,
		TaskID:      req.TaskID,
		StoragePath: contentPath,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now().UTC(),
		Metadata:    req.Metadata,
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal archive metadata: %w", err)
	}
	if err := writeFileAtomic(g.fs, filepath.Join(archiveDir, "metadata.json"), metadataJSON); err != nil {
		return nil, fmt.Errorf("write archive metadata: %w", err)
	}

	return &metadata, nil
}

// LoadArchive retrieves a stored export by ID
func (g *LocalArchiveGateway) LoadArchive(ctx context.Context, archiveID string) (*output.Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archiveDir, err := g.findArchiveDir(archiveID)
	if err != nil {
		return nil, err
	}

	metadataJSON, err := afero.ReadFile(g.fs, filepath.Join(archiveDir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("read archive metadata: %w", err)
	}
	var metadata output.ArchiveMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal archive metadata: %w", err)
	}

	content, err := afero.ReadFile(g.fs, filepath.Join(archiveDir, "content"))
	if err != nil {
		return nil, fmt.Errorf("read archive content: %w", err)
	}

	return &output.Archive{ID: archiveID, Content: content, Metadata: metadata}, nil
}

// ListArchives returns metadata for all archives of a task, oldest first
func (g *LocalArchiveGateway) ListArchives(ctx context.Context, taskID string) ([]*output.ArchiveMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	taskDir := filepath.Join(g.baseDir, "archives", taskID)
	entries, err := afero.ReadDir(g.fs, taskDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list archives: %w", err)
	}

	var out []*output.ArchiveMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadataJSON, err := afero.ReadFile(g.fs, filepath.Join(taskDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var metadata output.ArchiveMetadata
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			continue
		}
		out = append(out, &metadata)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (g *LocalArchiveGateway) findArchiveDir(archiveID string) (string, error) {
	archivesDir := filepath.Join(g.baseDir, "archives")
	taskDirs, err := afero.ReadDir(g.fs, archivesDir)
	if err != nil {
		return "", fmt.Errorf("archive not found: %s", archiveID)
	}
	for _, taskDir := range taskDirs {
		if !taskDir.IsDir() {
			continue
		}
		candidate := filepath.Join(archivesDir, taskDir.Name(), archiveID)
		if ok, _ := afero.DirExists(g.fs, candidate); ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("archive not found: %s", archiveID)
}

// writeFileAtomic writes through a temp file and renames it into place
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}

// generateArchiveID derives a unique ID from content hash and time
func generateArchiveID(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(hash[:8]))
}
