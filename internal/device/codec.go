// Package device 는 유닉스 소켓 위로 제어 프로토콜을 전달한다. 연결 하나가
// 장치 핸들 하나다. 첫 프레임이 장치를 열고 이후 프레임은 순서대로 처리되는
// 제어 요청이며 close 프레임이나 연결 종료로 끝난다.
package device

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"smart-watchdog/internal/bootstatus"
	"smart-watchdog/internal/control"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("device: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxNestedLevels: 8,
	}.DecMode()
	if err != nil {
		panic("device: CBOR decoder initialization failed: " + err.Error())
	}
}

// Frame 은 와이어 위의 요청 하나다.
type Frame struct {
	Op    string `cbor:"op"`
	Value int    `cbor:"value,omitempty"`
	Data  []byte `cbor:"data,omitempty"`
}

// Response 는 모든 프레임에 대한 응답 봉투다.
type Response struct {
	OK     bool               `cbor:"ok"`
	Code   string             `cbor:"code,omitempty"`
	Error  string             `cbor:"error,omitempty"`
	Value  int                `cbor:"value,omitempty"`
	Info   *control.Info      `cbor:"info,omitempty"`
	Status *bootstatus.Record `cbor:"status,omitempty"`
}

// maxFrameSize 는 디코딩할 프레임 하나의 최대 크기다.
const maxFrameSize = 64 * 1024

// frameReader 는 오래 유지되는 연결에서 프레임마다 크기를 따로 제한한다.
type frameReader struct {
	limited *io.LimitedReader
	dec     *cbor.Decoder
}

func newFrameReader(r io.Reader) *frameReader {
	limited := &io.LimitedReader{R: r, N: maxFrameSize}
	return &frameReader{limited: limited, dec: decMode.NewDecoder(limited)}
}

func (f *frameReader) next(v any) error {
	f.limited.N = maxFrameSize
	return f.dec.Decode(v)
}
