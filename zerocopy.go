// Copyright (c) 2023 Alexander Khudich
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tempo

import "fmt"

// ZeroCopyStream lets a decoder write samples straight into the stream's
// input queue, avoiding one copy per frame on the feed path.
type ZeroCopyStream struct {
	*Stream
}

// NewZeroCopyStream creates a new ZeroCopyStream wrapping a Stream with the
// specified sample rate and speed.
func NewZeroCopyStream(sampleRate int, speed float64) *ZeroCopyStream {
	return &ZeroCopyStream{NewStream(sampleRate, speed)}
}

// Process borrows a buffer of size samples from the input queue, lets f fill
// it with decoded audio, returns it to the queue, and reads back exactly size
// processed samples, or none while fewer are available. The returned slice
// must be consumed before the
// next Process call, as it may be overwritten during subsequent processing.
//
//	frame, err := zcs.Process(frameSize, func(buf []float32) error {
//		return decoder.DecodeInto(buf, packet)
//	})
func (s *ZeroCopyStream) Process(size int, f func(buf []float32) error) ([]float32, error) {
	tempAudioBuf, err := s.BorrowRawSlice(size)
	if err != nil {
		return nil, fmt.Errorf("buffer borrow: %w", err)
	}

	if err := f(tempAudioBuf); err != nil {
		return nil, fmt.Errorf("function call: %w", err)
	}

	if err := s.ReturnRawSlice(tempAudioBuf); err != nil {
		return nil, fmt.Errorf("buffer return: %w", err)
	}

	data, err := s.read(size)
	if err != nil {
		return nil, fmt.Errorf("stream reading: %w", err)
	}

	return data, nil
}

// BorrowRawSlice borrows a raw slice of n samples from the input queue.
// Care must be taken not to hold the slice across another queue operation.
func (s *ZeroCopyStream) BorrowRawSlice(n int) ([]float32, error) {
	return s.inputBuffer.RawSlice(n)
}

// ReturnRawSlice returns the borrowed slice back to the input queue. It must
// be called immediately after BorrowRawSlice; borrowing multiple slices and
// returning them in bulk is not supported.
func (s *ZeroCopyStream) ReturnRawSlice(slice []float32) error {
	return s.inputBuffer.RawLenAdd(len(slice))
}

// read serves num samples. At unity speed and gain it reads straight from
// the input queue, bypassing processing entirely; otherwise it runs the
// driver and reads from the output queue.
func (s *ZeroCopyStream) read(num int) ([]float32, error) {
	if num == 0 {
		return nil, nil
	}

	if s.nearUnity() && s.volume == 1.0 && s.outputBuffer.Len() == 0 {
		if s.inputBuffer.Len() < num {
			return nil, nil
		}
		return s.inputBuffer.ReadSlice(num)
	}

	if err := s.processStreamInput(); err != nil {
		return nil, err
	}
	if s.outputBuffer.Len() < num {
		return nil, nil
	}
	return s.outputBuffer.ReadSlice(num)
}

// ReadFrame retrieves num processed samples, or nil if that many are not
// available yet.
func (s *ZeroCopyStream) ReadFrame(num int) ([]float32, error) {
	return s.read(num)
}
