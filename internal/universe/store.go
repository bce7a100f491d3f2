// Package universe 维护小盘股票池：从交易所清单构建并落盘为一行一个代码的文本文件，供扫描读取。
package universe

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmpty 股票池文件存在但没有任何代码。
var ErrEmpty = errors.New("universe: empty")

// Load 读取股票池文件，去掉首尾空白并跳过空行。
// 文件缺失返回 os.ErrNotExist 包装错误，文件为空返回 ErrEmpty；两种情况都返回空切片。
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return []string{}, fmt.Errorf("universe: open %s: %w", path, err)
	}
	defer f.Close()

	tickers := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			tickers = append(tickers, t)
		}
	}
	if err := sc.Err(); err != nil {
		return []string{}, fmt.Errorf("universe: read %s: %w", path, err)
	}
	if len(tickers) == 0 {
		return tickers, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return tickers, nil
}

// Save 整体覆盖写入，一行一个代码。先写临时文件再 rename，中途失败不会留下半截文件。
func Save(path string, tickers []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("universe: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, t := range tickers {
		if _, err := w.WriteString(t + "\n"); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("universe: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("universe: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("universe: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("universe: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("universe: rename: %w", err)
	}
	tmpName = ""
	return nil
}
