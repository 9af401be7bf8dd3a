package imageworker

import "github.com/carlito03/rets/internal/assets"

// jobMessage carries a decoded job through the pool together with the
// delivery bookkeeping needed to ack or nack it afterwards.
type jobMessage struct {
	Job         assets.ImageBuildJob
	DeliveryTag uint64
	Redelivered bool
}
