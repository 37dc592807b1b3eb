package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCatalogLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Introduction ........ 12", true},
		{"第一章 概述 ·········· iv", true},
		{"1.2 Background of the study", true},
		{"3 Results and discussion", true},
		{"short 1", false},
		{"A normal sentence about things.", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCatalogLine(tt.line))
		})
	}
}

func TestValidLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"too short", " ab ", false},
		{"two cjk chars", "摘要", false},
		{"punctuation", "—— 12.3 %", false},
		{"catalog", "Chapter One ......... 3", false},
		{"page marker cn", "第 3 页", false},
		{"page marker en", "page 12 of the report", false},
		{"fraction", "slide 3 / 20", false},
		{"copyright", "版权所有 某某公司", false},
		{"confidential", "CONFIDENTIAL draft", false},
		{"content en", "Revenue grew in the third quarter", true},
		{"content cn", "市场规模持续扩大", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidLine(tt.line))
		})
	}
}

func TestCleanWhitespace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  中文 文本  ", "中文文本"},
		{"Hello    world", "Hello world"},
		{"AI 模型 训练", "AI 模型训练"},
		{"数据 GPU 集群", "数据 GPU 集群"},
		{"1 2 3", "123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanWhitespace(tt.in), tt.in)
	}
}

func TestCutText(t *testing.T) {
	assert.Equal(t, "report.pdf", CutText("report.pdf", 70))
	assert.Equal(t, "abcd...", CutText("abcdefgh", 4))
	// wide characters take two columns
	assert.Equal(t, "中文...", CutText("中文文件名", 5))
}
