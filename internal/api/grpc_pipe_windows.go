//go:build windows

package api

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeBufferSize вмещает чанк из нескольких секунд float32 аудио в JSON
const pipeBufferSize = 1 << 20

func listenPipe(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, &winio.PipeConfig{
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
}
