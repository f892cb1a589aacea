package shinobi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingCatalog(t *testing.T) {
	t.Run("ParsesVideosAndPassesLimit", func(t *testing.T) {
		var gotPath, gotLimit string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotLimit = r.URL.Query().Get("limit")
			fmt.Fprint(w, `{"ok":true,"videos":[
				{"filename":"2026-08-25T10:10:00.mp4","time":"2026-08-25T10:10:00Z","end":"2026-08-25T10:15:00Z","size":1048576},
				{"filename":"2026-08-25T10:00:00.mp4","time":"2026-08-25T10:00:00","end":"2026-08-25T10:05:00"}
			]}`)
		}))
		defer ts.Close()

		clips, err := newAdapter(t).RecordingCatalog(context.Background(), testServer(ts.URL), "m1", 50)
		require.NoError(t, err)
		require.Len(t, clips, 2)

		assert.Equal(t, "/apikey123/videos/group456/m1", gotPath)
		assert.Equal(t, "50", gotLimit)

		// RFC3339 타임스탬프
		assert.Equal(t, time.Date(2026, 8, 25, 10, 10, 0, 0, time.UTC), clips[0].Start)
		assert.Equal(t, int64(1048576), clips[0].SizeBytes)

		// 구형 빌드의 로컬 포맷도 허용
		assert.Equal(t, 2026, clips[1].Start.Year())
		assert.Equal(t, 10, clips[1].Start.Hour())

		assert.Contains(t, clips[0].Href, "/apikey123/videos/group456/m1/2026-08-25T10:10:00.mp4")
	})

	t.Run("UnparseableTimestamp_LeavesZeroTime", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok":true,"videos":[{"filename":"broken.mp4","time":"yesterday-ish","end":""}]}`)
		}))
		defer ts.Close()

		clips, err := newAdapter(t).RecordingCatalog(context.Background(), testServer(ts.URL), "m1", 10)
		require.NoError(t, err)
		require.Len(t, clips, 1)
		assert.True(t, clips[0].Start.IsZero())
		assert.True(t, clips[0].End.IsZero())
	})

	t.Run("EmptyCatalog", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok":true,"videos":[]}`)
		}))
		defer ts.Close()

		clips, err := newAdapter(t).RecordingCatalog(context.Background(), testServer(ts.URL), "m1", 10)
		require.NoError(t, err)
		assert.Empty(t, clips)
	})
}

func TestDownloadURL(t *testing.T) {
	t.Run("BuildsProviderSideURL", func(t *testing.T) {
		server := testServer("http://vms.internal:8080/")

		got, err := newAdapter(t).DownloadURL(server, "m1", "2026-08-25T10:10:00.mp4")
		require.NoError(t, err)
		assert.Equal(t, "http://vms.internal:8080/apikey123/videos/group456/m1/2026-08-25T10:10:00.mp4", got)
	})

	t.Run("InternalBaseEvenWithPublicBaseSet", func(t *testing.T) {
		// 다운로드는 허브 서버가 직접 수행하므로 내부 주소를 사용
		server := testServer("http://vms.internal:8080")
		server.PublicBaseURL = "https://vms.example.com"

		got, err := newAdapter(t).DownloadURL(server, "m1", "2026-08-25T10:10:00.mp4")
		require.NoError(t, err)
		assert.Contains(t, got, "http://vms.internal:8080/")
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		server := testServer("http://vms.internal:8080")
		server.APIKey = ""

		_, err := newAdapter(t).DownloadURL(server, "m1", "clip.mp4")
		assert.Error(t, err)
	})
}
