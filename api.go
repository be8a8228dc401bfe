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

// ChangeSpeed runs the whole of samples through a stream at the given speed
// and returns the produced samples. The input slice is not modified.
func ChangeSpeed(sampleRate int, speed float64, samples []float32) ([]float32, error) {
	stream := NewStream(sampleRate, speed)
	if err := stream.Write(samples); err != nil {
		return nil, err
	}
	if err := stream.Flush(); err != nil {
		return nil, err
	}

	out := stream.ReadAll()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}
