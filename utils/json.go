package utils

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
)

type JSONBufferPool struct {
	pool sync.Pool
}

func (p *JSONBufferPool) Get() *bytes.Buffer {
	if buf := p.pool.Get(); buf != nil {
		return buf.(*bytes.Buffer)
	}
	return bytes.NewBuffer(make([]byte, 0, 1024))
}

func (p *JSONBufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	if buf.Cap() < 16*1024 {
		p.pool.Put(buf)
	}
}

var jsonPool = &JSONBufferPool{}

func MarshalToBuffer(data interface{}, buf *bytes.Buffer) error {
	buf.Reset()
	encoder := sonic.ConfigStd.NewEncoder(buf)
	return encoder.Encode(data)
}

func Marshal(data interface{}) ([]byte, error) {
	buf := jsonPool.Get()
	defer jsonPool.Put(buf)

	if err := MarshalToBuffer(data, buf); err != nil {
		return nil, err
	}

	// Encode appends a newline.
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigStd.Unmarshal(data, target)
}

// UnmarshalInto decodes into an untyped destination such as a caller-supplied pointer.
func UnmarshalInto(data []byte, target interface{}) error {
	return sonic.ConfigStd.Unmarshal(data, target)
}

func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}

	configBytes, err := sonic.ConfigDefault.Marshal(config)
	if err != nil {
		return err
	}

	return sonic.ConfigDefault.Unmarshal(configBytes, target)
}
