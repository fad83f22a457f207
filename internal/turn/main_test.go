package turn

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/xdg/bastion/internal/clog"
)

func TestMain(m *testing.M) {
	clog.Discard()
	goleak.VerifyTestMain(m)
}
