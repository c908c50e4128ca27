// Package main provides localization for the watermark CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Tile a text watermark over images and PDF documents.": "画像とPDF文書にテキストの透かしを敷き詰めます。",

		// Version command
		"watermark version %s": "watermark バージョン %s",

		// Errors
		"Watermark text is required": "透かしのテキストが必要です",
		"Invalid thread count":       "スレッド数が不正です",
		"%d of %d files failed":      "%d / %d ファイルの処理に失敗しました",

		// Summary content
		"Watermark Summary": "透かし処理サマリー",
		"Generated":         "生成日時",
		"Run ID":            "実行ID",
		"Input":             "入力",
		"Version":           "バージョン",
		"Watermark":         "透かし",
		"Execution":         "実行設定",
		"Results":           "実行結果",
		"Setting":           "項目",
		"Value":             "値",

		// Watermark section
		"Text":        "テキスト",
		"Pattern":     "パターン",
		"Text Scale":  "文字サイズ比",
		"Space Scale": "間隔比",
		"Color":       "色",
		"Opacity":     "不透明度",
		"Seed":        "シード",
		"Font":        "フォント",

		// Execution section
		"GPU":         "GPU",
		"Threads":     "スレッド数",
		"Concurrency": "同時処理数",
		"Quality":     "品質",
		"PDF Output":  "PDF出力",
		"Recursive":   "再帰処理",
		"auto":        "自動",
		"Yes":         "はい",
		"No":          "いいえ",

		// Results section
		"Files":        "ファイル数",
		"Succeeded":    "成功",
		"Failed":       "失敗",
		"Canceled":     "キャンセル",
		"Elapsed":      "所要時間",
		"Total Output": "出力合計",
		"Output":       "出力",
		"Pages":        "ページ数",
		"Backend":      "バックエンド",
		"Size":         "サイズ",
		"Time":         "時間",
		"Status":       "状態",
		"OK":           "成功",
	})
}
