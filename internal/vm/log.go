package vm

import (
	"github.com/kitsune32/kitsune/internal/log"
)

// WithLogger is an option function that configures the machine to log to a
// particular logger.
func WithLogger(logger *log.Logger) OptionFn {
	return func(m *Machine) {
		m.log = logger
	}
}

func (m *Machine) LogValue() log.Value {
	return log.GroupValue(
		log.String("IP", m.PC.String()),
		log.String("SP", m.SP.String()),
		log.String("ESP", m.ESP.String()),
		log.String("FP", m.FP.String()),
		log.String("FLAGS", m.Flags.String()),
		log.String("OPERAND", m.ExceptionOperand.String()),
		log.Any("REG", m.REG),
	)
}
