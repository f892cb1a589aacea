package mediaproxy

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRelayBinary writes a stand-in for ffmpeg that ignores its
// arguments and blocks until killed.
func fakeRelayBinary(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 60\n"), 0755))
	return script
}

func newTestFFmpegProxy(t *testing.T) *FFmpegProxy {
	t.Helper()
	return NewFFmpeg(FFmpegConfig{
		Binary:        fakeRelayBinary(t),
		OutputDir:     t.TempDir(),
		PublicBaseURL: "http://hub:8889/hls",
		RestartDelay:  50 * time.Millisecond,
		Logger:        zap.NewNop(),
	})
}

func registeredRelay(p *FFmpegProxy, cameraID string) *relay {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.relays[cameraID]
}

func relayPID(p *FFmpegProxy, cameraID string) int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if r := p.relays[cameraID]; r != nil && r.cmd != nil && r.cmd.Process != nil {
		return r.cmd.Process.Pid
	}
	return 0
}

func TestFFmpegProxy_EnsureLive(t *testing.T) {
	t.Run("StartsRelayAndReturnsPlaylistURL", func(t *testing.T) {
		proxy := newTestFFmpegProxy(t)
		defer proxy.StopAll()

		hlsURL, err := proxy.EnsureLive(context.Background(), testCamera())
		require.NoError(t, err)
		assert.Equal(t, "http://hub:8889/hls/cam-cam-1/index.m3u8", hlsURL)
		assert.Equal(t, 1, proxy.RelayCount())

		r := registeredRelay(proxy, "cam-1")
		require.NotNil(t, r)
		assert.Equal(t, "cam-cam-1", r.pathName)

		info, err := os.Stat(filepath.Join(proxy.outputDir, "cam-cam-1"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("SecondCallReusesRelay", func(t *testing.T) {
		proxy := newTestFFmpegProxy(t)
		defer proxy.StopAll()

		first, err := proxy.EnsureLive(context.Background(), testCamera())
		require.NoError(t, err)
		pid := relayPID(proxy, "cam-1")
		require.NotZero(t, pid)

		second, err := proxy.EnsureLive(context.Background(), testCamera())
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, proxy.RelayCount())
		assert.Equal(t, pid, relayPID(proxy, "cam-1"), "an existing relay must be reused, not replaced")
	})

	t.Run("BinaryMissing", func(t *testing.T) {
		proxy := NewFFmpeg(FFmpegConfig{
			Binary:        filepath.Join(t.TempDir(), "no-such-ffmpeg"),
			OutputDir:     t.TempDir(),
			PublicBaseURL: "http://hub:8889/hls",
			Logger:        zap.NewNop(),
		})

		_, err := proxy.EnsureLive(context.Background(), testCamera())
		require.Error(t, err)
		assert.Equal(t, 0, proxy.RelayCount())
	})
}

func TestFFmpegProxy_RelayLifecycle(t *testing.T) {
	t.Run("CrashedRelayRestarted", func(t *testing.T) {
		proxy := newTestFFmpegProxy(t)
		defer proxy.StopAll()
		camera := testCamera()

		_, err := proxy.EnsureLive(context.Background(), camera)
		require.NoError(t, err)

		firstPID := relayPID(proxy, camera.ID)
		require.NotZero(t, firstPID)

		first := registeredRelay(proxy, camera.ID)
		require.NoError(t, first.cmd.Process.Kill())

		assert.Eventually(t, func() bool {
			pid := relayPID(proxy, camera.ID)
			return pid != 0 && pid != firstPID
		}, 3*time.Second, 20*time.Millisecond, "a crashed relay must come back with a fresh process")
		assert.Equal(t, 1, proxy.RelayCount())
	})

	t.Run("ReplacedRelayNotRestartedByOldMonitor", func(t *testing.T) {
		proxy := newTestFFmpegProxy(t)
		defer proxy.StopAll()
		camera := testCamera()

		_, err := proxy.EnsureLive(context.Background(), camera)
		require.NoError(t, err)

		first := registeredRelay(proxy, camera.ID)
		require.NotNil(t, first)
		require.NoError(t, first.cmd.Process.Kill())

		// 첫 릴레이의 모니터가 재시작 대기에 들어간 사이 스위퍼가
		// 릴레이를 걷어내고 새 요청이 대체 릴레이를 등록하는 상황
		proxy.mutex.Lock()
		proxy.removeRelay(camera.ID, first)
		proxy.mutex.Unlock()

		_, err = proxy.EnsureLive(context.Background(), camera)
		require.NoError(t, err)

		second := registeredRelay(proxy, camera.ID)
		require.NotNil(t, second)
		require.NotSame(t, first, second)
		secondPID := relayPID(proxy, camera.ID)
		require.NotZero(t, secondPID)

		// 첫 릴레이의 모니터가 깨어나 재시작을 시도할 시간을 준다
		time.Sleep(4 * proxy.restartDelay)

		assert.Same(t, second, registeredRelay(proxy, camera.ID), "the replacement relay must stay registered")
		assert.Equal(t, secondPID, relayPID(proxy, camera.ID), "the replacement process must not be restarted by the old relay's monitor")
		assert.NoError(t, second.cmd.Process.Signal(syscall.Signal(0)), "the replacement process must still be running")
		assert.Equal(t, 1, proxy.RelayCount())
	})

	t.Run("IdleRelayReaped", func(t *testing.T) {
		proxy := NewFFmpeg(FFmpegConfig{
			Binary:        fakeRelayBinary(t),
			OutputDir:     t.TempDir(),
			PublicBaseURL: "http://hub:8889/hls",
			IdleTimeout:   30 * time.Millisecond,
			RestartDelay:  50 * time.Millisecond,
			Logger:        zap.NewNop(),
		})
		defer proxy.StopAll()

		_, err := proxy.EnsureLive(context.Background(), testCamera())
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)
		proxy.sweep()

		assert.Equal(t, 0, proxy.RelayCount())
		_, statErr := os.Stat(filepath.Join(proxy.outputDir, "cam-cam-1"))
		assert.True(t, os.IsNotExist(statErr), "the stream directory must be cleaned up with the relay")
	})
}
