package validation

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	ginOnce sync.Once
	ginErr  error
)

// RegisterGin installs the custom tags on gin's binding validator. Safe to call more than once.
func RegisterGin() error {
	ginOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			ginErr = errors.New("gin binding engine is not go-playground/validator")
			return
		}
		ginErr = Register(v)
	})
	return ginErr
}
