package center

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/models"
)

// LogOutput is an Output that logs every display. It is what the standalone
// server uses when no renderer is attached.
type LogOutput struct {
	logger *zap.Logger
}

func NewLogOutput(logger *zap.Logger) *LogOutput {
	if logger == nil {
		logger = zap.L()
	}
	return &LogOutput{logger: logger.Named("output")}
}

func (o *LogOutput) Display(_ context.Context, c *models.Campaign) error {
	o.logger.Info("display campaign",
		zap.String("campaign_id", c.ID),
		zap.String("output_type", c.Output.Type),
		zap.ByteString("payload", c.Output.Payload))
	return nil
}
