// Package logx 统一日志出口:logrus,可选 lumberjack 文件滚动。
// 数值计算包不打日志,只有通信层会用到。
package logx

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// L 全局 logger
func L() *logrus.Logger { return log }

// Options 日志配置;Path 为空则继续写 stderr
type Options struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxsizemb"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAgeDays int    `yaml:"maxagedays"`
}

// Init 按配置重设全局 logger
func Init(opt Options) error {
	if opt.Level != "" {
		lvl, err := logrus.ParseLevel(opt.Level)
		if err != nil {
			return errors.Wrapf(err, "bad log level %q", opt.Level)
		}
		log.SetLevel(lvl)
	}
	if opt.Path != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   opt.Path,
			MaxSize:    opt.MaxSizeMB,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAgeDays,
		})
	}
	return nil
}
