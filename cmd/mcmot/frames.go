package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLineSize is the largest frame line accepted, a line holds every
// embedding of a frame
const maxLineSize = 64 << 20

// ReadFrames parses one frame per line, each a JSON array of embeddings, eg:
//
//	[[0.1, 0.2, 0.3], [0.9, 0.0, 0.1]]
//
// Blank lines and lines starting with # are skipped.
func ReadFrames(r io.Reader) ([][][]float32, error) {

	var frames [][][]float32

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// skip blank or comment
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var frame [][]float32

		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			return nil, fmt.Errorf("line %d: invalid frame: %w", lineNo, err)
		}

		frames = append(frames, frame)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading frames: %w", err)
	}

	return frames, nil
}
