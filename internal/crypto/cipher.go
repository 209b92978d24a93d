package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/TheMichaelB/lockbox/internal/models"
)

// Encrypt encrypts plaintext using AES-256-CBC with PKCS7 padding.
// A new random IV is generated for every call.
//
// There is no authentication tag: the output is confidential but not
// tamper-evident.
func Encrypt(plaintext, key []byte) ([]byte, []byte, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	padded := pad(plaintext, BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, iv, nil
}

// Decrypt decrypts AES-256-CBC ciphertext and strips PKCS7 padding.
// Corrupted input, a wrong key or a wrong IV surface as
// *models.IntegrityError.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}

	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidIV, IVSize, len(iv))
	}

	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, &models.IntegrityError{
			Reason: fmt.Sprintf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), BlockSize),
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return unpad(padded, BlockSize)
}

// pad appends PKCS7 padding. Aligned input gets a full extra block.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, &models.IntegrityError{Reason: "padded data is not block aligned"}
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, &models.IntegrityError{Reason: "invalid padding"}
	}

	var bad byte
	for _, b := range data[len(data)-n:] {
		bad |= b ^ byte(n)
	}
	if bad != 0 {
		return nil, &models.IntegrityError{Reason: "invalid padding"}
	}

	return data[:len(data)-n], nil
}
