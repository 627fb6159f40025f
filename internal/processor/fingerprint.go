package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// HashFileContent 计算文件内容的SHA-256指纹（小写十六进制）。
// 同一字节序列总是得到同一指纹，与文件名无关。
func HashFileContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// BuildCVObjectKey 根据指纹派生对象存储键，内容寻址。
// 格式: cv/{jobID|unassigned}/{hash}{ext}
func BuildCVObjectKey(jobID *string, fileHash, fileName string) string {
	id := "unassigned"
	if jobID != nil && *jobID != "" {
		id = *jobID
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("cv/%s/%s%s", id, fileHash, ext)
}
