package contract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type acceptLoop struct{}

func (*acceptLoop) Run(context.Context) error { return nil }

func TestGetWorkerName(t *testing.T) {
	req := require.New(t)

	req.Equal("acceptLoop", GetWorkerName(&acceptLoop{}))
	req.Equal("NilWorker", GetWorkerName(nil))
}
