package postgresadapter

import (
	"time"

	"civitas/contexts/member-experience/digest-service/ports"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.Clock = SystemClock{}
