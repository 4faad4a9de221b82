package validator

import (
	"strings"
	"testing"
)

func TestIsValid_EmptyTargetLang(t *testing.T) {
	v := New("zh", "vi")

	valid, err := v.IsValid("1. Some translated text", "")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true for empty targetLang")
	}
}

func TestIsValid_EmptyTranslation(t *testing.T) {
	v := New("zh", "vi")

	for _, in := range []string{"", "   \n "} {
		valid, err := v.IsValid(in, "vi")
		if err == nil {
			t.Errorf("IsValid(%q): expected error", in)
		}
		if valid {
			t.Errorf("IsValid(%q): expected valid=false", in)
		}
	}
}

func TestIsValid_ShortTextAfterStripping(t *testing.T) {
	v := New("zh", "vi")

	// Long in bytes, but only a few letters once numbers and URLs go.
	text := "1. 你好 [URL:https://example.com/a/very/long/path]\n2. 世界"
	valid, err := v.IsValid(text, "vi")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true below the detection threshold")
	}
}

func TestIsValid_VietnameseList(t *testing.T) {
	v := New("zh", "vi")

	text := "1. Công ty trí tuệ nhân tạo đã phát hành mô hình mới\n2. Thị trường chứng khoán tăng mạnh trong tuần này"
	valid, err := v.IsValid(text, "vi")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true for Vietnamese text")
	}
}

func TestIsValid_UntranslatedChinese(t *testing.T) {
	v := New("zh", "vi")

	text := "1. 人工智能公司发布了新的大型语言模型\n2. 本周股市大幅上涨，投资者信心增强"
	valid, err := v.IsValid(text, "vi")
	if err == nil {
		t.Fatal("expected error for untranslated text")
	}
	if valid {
		t.Error("expected valid=false")
	}
	if !strings.Contains(err.Error(), "zh") {
		t.Errorf("error %q should name the detected language", err)
	}
}

func TestIsValid_RegionSubtag(t *testing.T) {
	v := New("zh", "en")

	text := "1. The artificial intelligence company released a new model"
	valid, err := v.IsValid(text, "EN-us")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("expected valid=true with region subtag and mixed case")
	}
}
