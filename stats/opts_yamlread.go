package stats

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// LoadOptions 从 YAML 文件读 accumulator 配置并校验
func LoadOptions(path string) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read yaml")
	}
	var o Options
	if err := yaml.Unmarshal(b, &o); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml")
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &o, nil
}
