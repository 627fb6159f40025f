package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashFileContent(t *testing.T) {
	content := []byte("同一份简历的字节内容")

	h1 := HashFileContent(content)
	h2 := HashFileContent(content)

	assert.Equal(t, h1, h2, "相同字节内容必须得到相同指纹")
	assert.Len(t, h1, 64, "SHA-256十六进制指纹长度应为64")

	h3 := HashFileContent([]byte("另一份简历"))
	assert.NotEqual(t, h1, h3, "不同内容的指纹应当不同")
}

func TestHashFileContentEmpty(t *testing.T) {
	// 空内容也有确定的指纹
	assert.Equal(t, HashFileContent(nil), HashFileContent([]byte{}))
}

func TestBuildCVObjectKey(t *testing.T) {
	jobID := "job-123"
	hash := "abcdef0123"

	key := BuildCVObjectKey(&jobID, hash, "简历.PDF")
	assert.Equal(t, "cv/job-123/abcdef0123.pdf", key, "扩展名应小写，路径按岗位分组")

	key = BuildCVObjectKey(nil, hash, "resume.pdf")
	assert.Equal(t, "cv/unassigned/abcdef0123.pdf", key, "未关联岗位的文件归入unassigned前缀")
}
