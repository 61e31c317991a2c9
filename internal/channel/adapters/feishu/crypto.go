package feishu

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// DecryptionError reports a malformed encrypted callback body.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt lark payload: %s: %v", e.Reason, e.Err)
	}
	return "decrypt lark payload: " + e.Reason
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

func cipherKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Decrypt opens an `encrypt` envelope: base64 of IV (16 bytes) followed by
// AES-256-CBC ciphertext, keyed by SHA-256 of the app encrypt key.
func Decrypt(encrypted, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid base64", Err: err}
	}
	if len(raw) < 2*aes.BlockSize {
		return "", &DecryptionError{Reason: "ciphertext too short"}
	}
	iv, data := raw[:aes.BlockSize], raw[aes.BlockSize:]
	if len(data)%aes.BlockSize != 0 {
		return "", &DecryptionError{Reason: "ciphertext is not a multiple of the block size"}
	}
	block, err := aes.NewCipher(cipherKey(secret))
	if err != nil {
		return "", &DecryptionError{Reason: "init cipher", Err: err}
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid padding", Err: err}
	}
	return string(plain), nil
}

// Encrypt is the inverse of Decrypt using a random IV.
func Encrypt(plaintext, secret string) (string, error) {
	block, err := aes.NewCipher(cipherKey(secret))
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext))
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("pad length %d out of range", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent pad bytes")
		}
	}
	return data[:len(data)-n], nil
}
