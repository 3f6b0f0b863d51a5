package market

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer 带千位分组的格式化器，用于 API 层展示金额/成交量
var printer = message.NewPrinter(language.English)

// FormatMillions 格式化百万泰铢金额，带千位分隔，保留两位小数
func FormatMillions(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// FormatVolume 格式化成交量（千股），带千位分隔，取整
func FormatVolume(v float64) string {
	return printer.Sprintf("%.0f", v)
}
