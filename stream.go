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

const (
	// MinPitch specifies the lower bound of voice pitches we try to match, in Hz.
	MinPitch = 65

	// MaxPitch specifies the upper bound of voice pitches we try to match, in Hz.
	MaxPitch = 400

	// AmdfFreq is the target rate, in Hz, the coarse AMDF pass is decimated to.
	AmdfFreq = 4000

	// AmdfRange is the half-width of the fine AMDF search window, as a
	// fraction of the coarse period.
	AmdfRange = 0.1

	// speedEpsilon is the band around 1.0 within which the stream is a
	// verbatim pass-through.
	speedEpsilon = 1e-6
)

// Stream is a streaming time-domain speed changer. It consumes monophonic
// float32 PCM at a fixed sample rate and emits samples at the same rate
// representing the same content played at a constant speed factor, with
// pitch preserved. Whole pitch periods are skipped (speedup) or inserted
// (slowdown) and the seams are smoothed with linear cross-fades.
//
// A Stream is single-threaded and non-reentrant; distinct streams are
// independent.
type Stream struct {
	// inputBuffer holds unconsumed input samples in arrival order.
	inputBuffer *SampleBuffer

	// outputBuffer holds produced samples not yet read by the caller.
	outputBuffer *SampleBuffer

	// speed is the playback speed factor, fixed for the life of the stream.
	// >1 compresses time, <1 expands.
	speed float64

	// volume is a linear gain applied to produced output.
	volume float64

	// sampleRate is the rate of both input and output, in samples per second.
	sampleRate int

	// minPeriod is the shortest pitch period the estimator considers.
	minPeriod int

	// maxPeriod is the longest pitch period the estimator considers.
	maxPeriod int

	// maxRequired is 2*maxPeriod: how much buffered input the driver needs
	// before it can safely examine a period and its lookahead.
	maxRequired int

	// remainingInputToCopy counts upcoming input samples the driver must
	// forward verbatim before invoking the next mutator. It realizes the
	// fractional part of speed ratios between 0.5 and 2.
	remainingInputToCopy int
}

// NewStream creates a stream that plays back at the given constant speed.
// Typical sample rates are 8000 to 48000.
func NewStream(sampleRate int, speed float64) *Stream {
	minPeriod := sampleRate / MaxPitch
	if minPeriod < 1 {
		minPeriod = 1
	}
	maxPeriod := sampleRate / MinPitch
	if maxPeriod <= minPeriod {
		maxPeriod = minPeriod + 1
	}
	maxRequired := 2 * maxPeriod

	return &Stream{
		sampleRate:   sampleRate,
		speed:        speed,
		volume:       1.0,
		minPeriod:    minPeriod,
		maxPeriod:    maxPeriod,
		maxRequired:  maxRequired,
		inputBuffer:  NewSampleBuffer(maxRequired),
		outputBuffer: NewSampleBuffer(maxRequired),
	}
}

// GetSpeed returns the speed factor of the stream.
func (s *Stream) GetSpeed() float64 {
	return s.speed
}

// GetSampleRate returns the sample rate of the stream.
func (s *Stream) GetSampleRate() int {
	return s.sampleRate
}

// GetVolume returns the output gain of the stream.
func (s *Stream) GetVolume() float64 {
	return s.volume
}

// SetVolume sets the output gain. It affects samples produced after the call.
func (s *Stream) SetVolume(volume float64) {
	s.volume = volume
}

// nearUnity reports whether the stream is a verbatim pass-through.
func (s *Stream) nearUnity() bool {
	return s.speed > 1.0-speedEpsilon && s.speed < 1.0+speedEpsilon
}

// Write feeds samples into the stream and produces whatever output the
// buffered backlog allows. It returns ErrTooLarge when a queue cannot grow;
// the failed call produces no output and the stream remains usable.
func (s *Stream) Write(samples []float32) error {
	if s.nearUnity() {
		out := s.outputBuffer.Len()
		if err := s.outputBuffer.AddSamples(samples); err != nil {
			return err
		}
		return s.scaleNewOutput(out)
	}

	if err := s.inputBuffer.AddSamples(samples); err != nil {
		return err
	}
	return s.processStreamInput()
}

// Read copies up to len(to) produced samples into to and returns the number
// copied. Zero means no output is buffered; it is not an error.
func (s *Stream) Read(to []float32) int {
	if len(to) == 0 {
		return 0
	}
	slice, err := s.outputBuffer.ReadSlice(len(to))
	if err != nil {
		return 0
	}
	return copy(to, slice)
}

// ReadAll drains the output queue. The returned slice aliases the queue and
// is valid until the next Write or Flush.
func (s *Stream) ReadAll() []float32 {
	slice, err := s.outputBuffer.Flush()
	if err != nil {
		return nil
	}
	return slice
}

// SamplesAvailable returns the number of produced samples not yet read.
func (s *Stream) SamplesAvailable() int {
	return s.outputBuffer.Len()
}

// NumInputSamples returns the number of buffered input samples not yet consumed.
func (s *Stream) NumInputSamples() int {
	return s.inputBuffer.Len()
}

// Reset discards all buffered input and output so the stream can be reused
// for a new signal at the same speed.
func (s *Stream) Reset() {
	s.inputBuffer.Reset()
	s.outputBuffer.Reset()
	s.remainingInputToCopy = 0
}

// Flush forces the stream to generate output from whatever input it still
// buffers, padding with silence so trailing content is emitted. The output
// is trimmed to the expected total, so at most a small zero tail remains.
func (s *Stream) Flush() error {
	if s.inputBuffer.Len() == 0 {
		s.remainingInputToCopy = 0
		return nil
	}

	expOutput := s.outputBuffer.Len() + int(float64(s.inputBuffer.Len())/s.speed+0.5)

	if _, err := s.inputBuffer.WriteEmpty(2 * s.maxRequired); err != nil {
		return err
	}
	if err := s.processStreamInput(); err != nil {
		return err
	}

	if s.outputBuffer.Len() > expOutput {
		s.outputBuffer.Truncate(expOutput)
	}

	s.inputBuffer.Reset()
	s.remainingInputToCopy = 0

	return nil
}

// processStreamInput runs the driver over the buffered input, emitting to
// the output queue and applying the output gain to whatever was produced.
func (s *Stream) processStreamInput() error {
	out := s.outputBuffer.Len()
	remaining := s.remainingInputToCopy

	if s.nearUnity() {
		if err := s.inputBuffer.MoveAllTo(s.outputBuffer.Buffer); err != nil {
			return err
		}
	} else if err := s.changeSpeed(); err != nil {
		// The consumed prefix was not dropped, so discard the partial
		// output and restore the copier counter.
		s.outputBuffer.Truncate(out)
		s.remainingInputToCopy = remaining
		return err
	}

	return s.scaleNewOutput(out)
}

// scaleNewOutput applies the output gain to samples produced past position out.
func (s *Stream) scaleNewOutput(out int) error {
	if s.volume == 1.0 || out >= s.outputBuffer.Len() {
		return nil
	}
	return s.outputBuffer.Scale(out, float32(s.volume))
}

// changeSpeed is the driver loop. While enough input is buffered it
// alternates between forwarding verbatim samples owed by the copier counter
// and running the estimator plus a mutator, then discards the consumed
// prefix in one step.
func (s *Stream) changeSpeed() error {
	n := s.inputBuffer.Len()
	if n < s.maxRequired {
		return nil
	}

	position := 0
	for position+s.maxRequired <= n {
		if s.remainingInputToCopy > 0 {
			copied, err := s.copyInputToOutput(position)
			if err != nil {
				return err
			}
			position += copied
			continue
		}

		view, err := s.inputBuffer.GetSliceAtN(position, s.maxRequired)
		if err != nil {
			return err
		}
		period := s.findPitchPeriod(view)

		var newSamples int
		if s.speed > 1.0 {
			newSamples, err = s.skipPitchPeriod(view, period)
			position += period + newSamples
		} else {
			newSamples, err = s.insertPitchPeriod(view, period)
			position += newSamples
		}
		if err != nil {
			return err
		}
	}

	return s.inputBuffer.DropSlice(position)
}

// copyInputToOutput forwards up to maxRequired verbatim samples owed by the
// copier counter, starting at position. It returns the number forwarded.
func (s *Stream) copyInputToOutput(position int) (int, error) {
	n := s.remainingInputToCopy
	if n > s.maxRequired {
		n = s.maxRequired
	}

	slice, err := s.inputBuffer.GetSliceAtN(position, n)
	if err != nil {
		return 0, err
	}
	if err := s.outputBuffer.WriteSlice(slice); err != nil {
		return 0, err
	}

	s.remainingInputToCopy -= n
	return n, nil
}

// skipPitchPeriod skips over one pitch period, emitting a cross-faded
// segment in its place. It returns the number of output samples. The caller
// advances its cursor by period+newSamples.
func (s *Stream) skipPitchPeriod(view []float32, period int) (int, error) {
	var newSamples, inputToCopy int
	if s.speed >= 2.0 {
		// For speeds >= 2.0, we skip over a portion of each pitch period
		// rather than dropping whole pitch periods.
		newSamples = int(float64(period) / (s.speed - 1.0))
	} else {
		newSamples = period
		inputToCopy = int(float64(period) * (2.0 - s.speed) / (s.speed - 1.0))
	}

	if err := s.overlapAdd(view, newSamples, period); err != nil {
		return 0, err
	}
	s.remainingInputToCopy = inputToCopy
	return newSamples, nil
}

// insertPitchPeriod repeats one pitch period: the period is emitted
// verbatim, then a cross-faded copy of it. It returns the number of
// cross-faded samples; the caller advances its cursor by that count only,
// so the next window overlaps the repetition.
func (s *Stream) insertPitchPeriod(view []float32, period int) (int, error) {
	var newSamples, inputToCopy int
	if s.speed < 0.5 {
		newSamples = int(float64(period) * s.speed / (1.0 - s.speed))
	} else {
		newSamples = period
		inputToCopy = int(float64(period) * (2.0*s.speed - 1.0) / (1.0 - s.speed))
	}
	if newSamples < 1 {
		// At extreme slowdowns the formula truncates to zero, which would
		// stall the cursor. One sample keeps the driver advancing.
		newSamples = 1
	}

	if err := s.outputBuffer.WriteSlice(view[:period]); err != nil {
		return 0, err
	}
	if err := s.overlapAddReverse(view, newSamples, period); err != nil {
		return 0, err
	}
	s.remainingInputToCopy = inputToCopy
	return newSamples, nil
}

// overlapAdd emits numSamples cross-faded samples, ramping the first period
// down while ramping the one period further up.
func (s *Stream) overlapAdd(view []float32, numSamples, period int) error {
	cur, err := s.outputBuffer.WriteEmpty(numSamples)
	if err != nil {
		return err
	}

	n := float32(numSamples)
	for i := 0; i < numSamples; i++ {
		down := view[i]
		up := view[i+period]
		s.outputBuffer.Set(cur+i, (down*float32(numSamples-i)+up*float32(i))/n)
	}
	return nil
}

// overlapAddReverse is the insertion fade: it ramps the first period up
// while ramping the lookahead period down, so the repeated period blends
// back into the signal.
func (s *Stream) overlapAddReverse(view []float32, numSamples, period int) error {
	cur, err := s.outputBuffer.WriteEmpty(numSamples)
	if err != nil {
		return err
	}

	n := float32(numSamples)
	for i := 0; i < numSamples; i++ {
		up := view[i]
		down := view[i+period]
		s.outputBuffer.Set(cur+i, (up*float32(i)+down*float32(numSamples-i))/n)
	}
	return nil
}
