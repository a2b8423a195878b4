package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core"
)

func TestRollbarLogger(t *testing.T) {
	local, hook := test.NewNullLogger()
	local.SetLevel(logrus.DebugLevel)
	logger := NewRollbarLogger(logrus.NewEntry(local), &core.Config{Env: "TEST", TestMode: true})

	errBoom := errors.New("boom")
	actor := core.Actor{ID: "7", Name: "registrar", Partition: "FT"}

	tests := []struct {
		name       string
		log        func(msg string, args ...interface{})
		args       []interface{}
		wantLevel  logrus.Level
		wantFields logrus.Fields
	}{
		{name: "debug", log: logger.Debug, wantLevel: logrus.DebugLevel, wantFields: logrus.Fields{}},
		{
			name:       "info with actor",
			log:        logger.Info,
			args:       []interface{}{actor},
			wantLevel:  logrus.InfoLevel,
			wantFields: logrus.Fields{"actor_id": "7", "actor_partition": "FT"},
		},
		{
			name:       "warn with extras",
			log:        logger.Warn,
			args:       []interface{}{map[string]interface{}{"key": "FT"}},
			wantLevel:  logrus.WarnLevel,
			wantFields: logrus.Fields{"key": "FT"},
		},
		{
			name:       "error with error and actor",
			log:        logger.Error,
			args:       []interface{}{errBoom, actor, core.Actor{ID: "8"}},
			wantLevel:  logrus.ErrorLevel,
			wantFields: logrus.Fields{logrus.ErrorKey: errBoom, "actor_id": "7", "actor_partition": "FT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			tt.log(tt.name, tt.args...)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.name, entry.Message)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, tt.wantFields, entry.Data)
		})
	}
}

func TestRollbarLogger_prepare(t *testing.T) {
	local, _ := test.NewNullLogger()
	logger := NewRollbarLogger(logrus.NewEntry(local), &core.Config{TestMode: true})

	args, _ := logger.prepare("msg", []interface{}{core.Actor{ID: "1"}, "extra"})
	assert.Equal(t, []interface{}{"msg", "extra"}, args)
}
