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

// SampleBuffer is a queue of monophonic float32 PCM samples, built upon the
// generic Buffer. It adds zero filling and in-place gain on top of the FIFO
// operations the stream driver needs.
type SampleBuffer struct {
	*Buffer[float32]
	empty []float32 // slice of silence for efficient use in WriteEmpty
}

// NewSampleBuffer creates a new SampleBuffer with the specified capacity in samples.
func NewSampleBuffer(capacity int) *SampleBuffer {
	return &SampleBuffer{
		Buffer: NewBuffer[float32](capacity),
		empty:  make([]float32, 4096),
	}
}

// AddSamples appends the given samples to the buffer.
func (b *SampleBuffer) AddSamples(s []float32) error {
	return b.WriteSlice(s)
}

// WriteEmpty appends n samples of silence, returning the sample position at
// which the silence begins.
func (b *SampleBuffer) WriteEmpty(n int) (int, error) {
	cur := b.Len()

	if len(b.empty) < n {
		b.empty = make([]float32, n+1024)
	}

	err := b.WriteSlice(b.empty[:n])
	return cur, err
}

// Set rewrites the sample at position at, counted from the front of the queue.
func (b *SampleBuffer) Set(at int, v float32) {
	b.WriteAt(at, v)
}

// Scale multiplies every sample from position at to the end by factor.
// Samples are not clipped; the engine is linear.
func (b *SampleBuffer) Scale(at int, factor float32) error {
	slice, err := b.ReadSliceAt(at)
	if err != nil {
		return err
	}
	for i := range slice {
		slice[i] *= factor
	}
	return b.WriteSlice(slice)
}

// Flush reads and returns all samples currently in the buffer.
func (b *SampleBuffer) Flush() ([]float32, error) {
	return b.ReadSlice(b.Len())
}
