package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Run level messages (info)
		"Watermarking %s with %q (%s pattern)":                 "%s に %q を透かしとして追加中 (%s パターン)",
		"Processing %d files with %d workers, %d threads each": "%d ファイルを %d ワーカー（各 %d スレッド）で処理中",
		"Done in %s: %d succeeded, %d failed, %d canceled":     "%s で完了: 成功 %d, 失敗 %d, キャンセル %d",
		"Interrupted, finishing files in progress...":          "中断されました。処理中のファイルを完了しています...",
		"No images found in %s":                                "%s に画像が見つかりません",

		// Batch progress
		"[%d/%d] %s -> %s (%s, %s)": "[%d/%d] %s -> %s (%s, %s)",
		"[%d/%d] Failed %s: %s":     "[%d/%d] %s の処理に失敗しました: %s",

		// Decode stage
		"Decoded %s: %dx%d, %d channels":   "%s をデコードしました: %dx%d, %d チャンネル",
		"Decoded %s: %d pages at %.0f DPI": "%s をデコードしました: %d ページ (%.0f DPI)",
		"Decoded %s: %d pages":             "%s をデコードしました: %d ページ",

		// Glyph stage
		"Rendered base mask %dx%d and %d rotated masks": "基本マスク %dx%d と回転マスク %d 個を描画しました",

		// Composite stage
		"Compositing %dx%d on %s":                            "%dx%d を %s で合成中",
		"Blending %d placements in %d bands with %d workers": "%d 個の配置を %d バンド、%d ワーカーで合成中",
		"Blended %d placements in %d dispatches on %s":       "%d 個の配置を %d 回のディスパッチで合成しました (%s)",

		// GPU selection
		"Using GPU: %s":                                      "GPU を使用: %s",
		"No GPU available: %v":                               "利用可能な GPU がありません: %v",
		"GPU requested but unavailable, falling back to CPU": "GPU が要求されましたが利用できません。CPU にフォールバックします",
		"GPU compositing failed, retrying on CPU: %v":        "GPU 合成に失敗しました。CPU で再試行します: %v",

		// Encode stage
		"Encoded %s: %d bytes":          "%s をエンコードしました: %d バイト",
		"Built PDF: %d pages, %d bytes": "PDF を作成しました: %d ページ, %d バイト",
		"Wrote %s: %d bytes":            "%s を書き出しました: %d バイト",

		// Warnings and errors
		"Failed to save debug output: %s": "デバッグ出力の保存に失敗しました: %s",
		"Failed to write summary: %s":     "サマリーの書き込みに失敗しました: %s",
		"Summary saved to %s":             "サマリーを %s に保存しました",
	})
}
