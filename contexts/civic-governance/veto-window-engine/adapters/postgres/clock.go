package postgresadapter

import (
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/ports"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.Clock = SystemClock{}
