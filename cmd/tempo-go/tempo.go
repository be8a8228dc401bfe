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

package main

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/pflag"

	"github.com/alttagil/tempo-go"
)

const BufLen = 4096

func main() {
	speed := pflag.Float64P("speed", "s", 1.0, "Speed up factor.  2.0 means 2X faster.")
	volume := pflag.Float64P("volume", "v", 1.0, "Volume scale factor.  2.0 means 2X louder.")
	in := pflag.StringP("in", "i", "", "Input WAV filename")
	out := pflag.StringP("out", "o", "out.wav", "Output WAV filename")
	pflag.Parse()

	f, err := os.Open(*in)
	if err != nil {
		log.Fatal("cannot open input", "err", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	format := decoder.Format()

	if format.NumChannels != 1 {
		log.Fatal("only mono input is supported", "channels", format.NumChannels)
	}

	stream := tempo.NewStream(format.SampleRate, *speed)
	stream.SetVolume(*volume)

	of, err := os.Create(*out)
	if err != nil {
		log.Fatal("cannot create output", "err", err)
	}
	defer of.Close()

	enc := wav.NewEncoder(of, format.SampleRate, 16, format.NumChannels, 1)
	defer enc.Close()

	intBuf := &audio.IntBuffer{Data: make([]int, BufLen)}
	floats := make([]float32, 0, BufLen)
	var elapsed time.Duration

	for {
		n, err := decoder.PCMBuffer(intBuf)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Fatal("decode failed", "err", err)
		}
		if n == 0 {
			break
		}
		if intBuf.SourceBitDepth > 16 {
			log.Fatal("unsupported bit depth", "depth", intBuf.SourceBitDepth)
		}

		floats = floats[:0]
		for i := 0; i < n; i++ {
			floats = append(floats, float32(intBuf.Data[i])/32767.0)
		}

		start := time.Now()
		if err := stream.Write(floats); err != nil {
			log.Fatal("write failed", "err", err)
		}
		elapsed += time.Since(start)

		if err := drain(stream, enc, format); err != nil {
			log.Fatal("encode failed", "err", err)
		}
	}

	start := time.Now()
	if err := stream.Flush(); err != nil {
		log.Fatal("flush failed", "err", err)
	}
	elapsed += time.Since(start)

	if err := drain(stream, enc, format); err != nil {
		log.Fatal("encode failed", "err", err)
	}

	log.Info("done", "elapsed", elapsed)
}

// drain writes everything the stream has produced so far to the encoder,
// converting back to 16-bit PCM at the edge.
func drain(stream *tempo.Stream, enc *wav.Encoder, format *audio.Format) error {
	buf := make([]float32, BufLen)
	ints := make([]int, 0, BufLen)

	for {
		n := stream.Read(buf)
		if n == 0 {
			return nil
		}

		ints = ints[:0]
		for i := 0; i < n; i++ {
			ints = append(ints, int(buf[i]*32767.0))
		}

		if err := enc.Write(&audio.IntBuffer{
			Format:         format,
			SourceBitDepth: 16,
			Data:           ints,
		}); err != nil {
			return err
		}
	}
}
