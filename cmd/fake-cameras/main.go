package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// fake-cameras publishes looping RTSP feeds with FFmpeg so direct-registered
// cameras have something live to point at during development. Pair it with a
// local MediaMTX listening on :8554, then register cameras with
// rtsp_url=rtsp://localhost:8554/cam1 and watch the status monitor flip them
// online.
func main() {
	count := flag.Int("count", 3, "게시할 가짜 카메라 수")
	target := flag.String("target", "rtsp://localhost:8554", "RTSP 서버 기본 주소")
	input := flag.String("input", "sample.mp4", "반복 재생할 영상 파일")
	flag.Parse()

	if _, err := os.Stat(*input); err != nil {
		fmt.Fprintf(os.Stderr, "Input file %s not found: %v\n", *input, err)
		os.Exit(1)
	}

	fmt.Printf("Publishing %d fake camera feeds to %s...\n", *count, *target)

	started := 0
	for i := 1; i <= *count; i++ {
		path := fmt.Sprintf("cam%d", i)
		rtspURL := fmt.Sprintf("%s/%s", *target, path)

		cmd := exec.Command("ffmpeg",
			"-re", "-stream_loop", "-1",
			"-i", *input,
			"-c:v", "copy", "-c:a", "copy",
			"-f", "rtsp", rtspURL)

		cmd.Stdout = nil
		cmd.Stderr = nil

		if err := cmd.Start(); err != nil {
			fmt.Printf("Failed to start %s: %v\n", path, err)
			continue
		}

		fmt.Printf("✅ %s (PID %d) -> %s\n", path, cmd.Process.Pid, rtspURL)
		started++
		time.Sleep(500 * time.Millisecond)
	}

	if started == 0 {
		fmt.Fprintln(os.Stderr, "No feeds started")
		os.Exit(1)
	}

	fmt.Printf("\n✅ %d feeds publishing. Register them as direct cameras:\n", started)
	fmt.Printf("   rtsp_url: %s/cam1 ... %s/cam%d\n", *target, *target, *count)
	fmt.Println("Press Ctrl+C to stop")

	// 프로세스가 종료되면 ffmpeg 자식들도 함께 정리된다
	select {}
}
