package model

import "testing"

func TestClampPercent(t *testing.T) {
	tests := []struct {
		fraction float64
		expected int
	}{
		{-0.5, 0},
		{0, 0},
		{0.105, 10},
		{0.999, 99},
		{1, 100},
		{1.7, 100},
	}

	for _, test := range tests {
		if got := ClampPercent(test.fraction); got != test.expected {
			t.Errorf("ClampPercent(%v) = %d, expected %d", test.fraction, got, test.expected)
		}
	}
}

func TestJobStatus_GetDisplayTitle(t *testing.T) {
	tests := []struct {
		title      string
		resultPath string
		sourceID   string
		expected   string
	}{
		{"Video Title", "", "dQw4w9WgXcQ", "Video Title"},
		{"", "/downloads/Some Clip [dQw4w9WgXcQ].mp4", "dQw4w9WgXcQ", "Some Clip [dQw4w9WgXcQ]"},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ", "", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"", `C:\videos\clip.webm`, "abc", "clip"},
	}

	for _, test := range tests {
		job := JobStatus{Title: test.title, ResultPath: test.resultPath, SourceID: test.sourceID}
		if got := job.GetDisplayTitle(); got != test.expected {
			t.Errorf("GetDisplayTitle() with title='%s', path='%s' = '%s', expected '%s'",
				test.title, test.resultPath, got, test.expected)
		}
	}
}
