package identity

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/internal/config"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func testIdentityConfig() config.IdentityConfig {
	return config.IdentityConfig{TitlePrefixLength: 24, MaxHandleAge: time.Hour, PruneInterval: time.Minute}
}
