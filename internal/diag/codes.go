package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка - на первое время
	UnknownCode Code = 0

	// Конфигурационные
	CfgInfo             Code = 100
	CfgMissingConfig    Code = 101
	CfgMalformedConfig  Code = 102
	CfgUnknownOption    Code = 103
	CfgBadOptionType    Code = 104
	CfgBadPragmaValue   Code = 105
	CfgModuleSystem     Code = 106
	CfgImportInterop    Code = 107
	CfgStaleCommit      Code = 108

	// Синтаксические
	SynInfo        Code = 2000
	SynParseFailed Code = 2001
	SynBadImport   Code = 2002

	// Семантические
	SemInfo        Code = 3000
	SemCheckFailed Code = 3001
	SemBadImport   Code = 3002

	// Эмиссия
	EmitInfo   Code = 4000
	EmitFailed Code = 4001
)

func (c Code) String() string {
	return fmt.Sprintf("QU%04d", uint16(c))
}

// Layer reports which compilation layer produced the code.
func (c Code) Layer() string {
	switch {
	case c >= EmitInfo:
		return "emit"
	case c >= SemInfo:
		return "semantic"
	case c >= SynInfo:
		return "syntax"
	case c >= CfgInfo:
		return "config"
	}
	return "unknown"
}
