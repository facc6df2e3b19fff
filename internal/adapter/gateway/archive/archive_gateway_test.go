package archive

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// gateways under test share one behavioral contract
func runArchiveGatewayTests(t *testing.T, newGateway func(t *testing.T) output.ArchiveGateway) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		g := newGateway(t)

		meta, err := g.SaveArchive(context.Background(), output.SaveArchiveRequest{
			TaskID:      "task-1",
			Content:     []byte(`{"step":"s1"}`),
			ContentType: "application/json",
			Metadata:    map[string]string{"label": "final"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, meta.ID)
		assert.Equal(t, "task-1", meta.TaskID)
		assert.Equal(t, int64(len(`{"step":"s1"}`)), meta.Size)

		archive, err := g.LoadArchive(context.Background(), meta.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"step":"s1"}`), archive.Content)
		assert.Equal(t, "application/json", archive.Metadata.ContentType)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		g := newGateway(t)
		_, err := g.LoadArchive(context.Background(), "no-such-archive")
		assert.Error(t, err)
	})

	t.Run("ListByTask", func(t *testing.T) {
		g := newGateway(t)

		for _, content := range []string{"one", "two"} {
			_, err := g.SaveArchive(context.Background(), output.SaveArchiveRequest{
				TaskID:      "task-list",
				Content:     []byte(content),
				ContentType: "text/plain",
			})
			require.NoError(t, err)
		}
		_, err := g.SaveArchive(context.Background(), output.SaveArchiveRequest{
			TaskID:      "other-task",
			Content:     []byte("three"),
			ContentType: "text/plain",
		})
		require.NoError(t, err)

		metas, err := g.ListArchives(context.Background(), "task-list")
		require.NoError(t, err)
		require.Len(t, metas, 2)
		for _, m := range metas {
			assert.Equal(t, "task-list", m.TaskID)
		}
		assert.True(t, !metas[1].UploadedAt.Before(metas[0].UploadedAt), "oldest first")
	})

	t.Run("ListEmptyTask", func(t *testing.T) {
		g := newGateway(t)
		metas, err := g.ListArchives(context.Background(), "never-saved")
		require.NoError(t, err)
		assert.Empty(t, metas)
	})
}

func TestLocalArchiveGateway(t *testing.T) {
	runArchiveGatewayTests(t, func(t *testing.T) output.ArchiveGateway {
		g, err := NewLocalArchiveGateway(afero.NewMemMapFs(), "/data")
		require.NoError(t, err)
		return g
	})
}

func TestS3ArchiveGateway(t *testing.T) {
	runArchiveGatewayTests(t, func(t *testing.T) output.ArchiveGateway {
		return NewS3ArchiveGatewayWithClient(NewMockS3Client(), "test-bucket", "waverun/test")
	})
}

func TestS3ArchiveGateway_KeyLayout(t *testing.T) {
	client := NewMockS3Client()
	g := NewS3ArchiveGatewayWithClient(client, "bucket", "pfx")

	meta, err := g.SaveArchive(context.Background(), output.SaveArchiveRequest{
		TaskID:      "t1",
		Content:     []byte("x"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, client.ObjectCount(), "content plus metadata.json")
	assert.Contains(t, meta.StoragePath, "s3://bucket/pfx/archives/t1/"+meta.ID+"/content")
}

func TestLocalArchiveGateway_Interface(t *testing.T) {
	var _ output.ArchiveGateway = (*LocalArchiveGateway)(nil)
	var _ output.ArchiveGateway = (*S3ArchiveGateway)(nil)
}
