package cache

import "fmt"

const (
	KeyFrameLatest = "frame:latest"
	ChannelFrames  = "frames"
)

func KeyRunFrame(runID string) string {
	return fmt.Sprintf("run:%s:frame", runID)
}

func KeyRunMeta(runID string) string {
	return fmt.Sprintf("run:%s:meta", runID)
}
