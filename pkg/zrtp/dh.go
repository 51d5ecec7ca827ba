package zrtp

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// modp3072Hex - простое число группы 15 из RFC 3526 (3072 бит)
const modp3072Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
	"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
	"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
	"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
	"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

var (
	modp3072Prime, _ = new(big.Int).SetString(modp3072Hex, 16)
	modp3072Gen      = big.NewInt(2)
)

// privateKeySize - размер секретной экспоненты в байтах (256 бит
// достаточно для 128-битной стойкости группы 3072)
const privateKeySize = 32

// Keypair - ключевая пара Диффи-Хеллмана группы 3072 бит
type Keypair struct {
	private *big.Int
	public  *big.Int
}

// GenerateKeypair создает ключевую пару со случайной секретной экспонентой
func GenerateKeypair() (*Keypair, error) {
	buf := make([]byte, privateKeySize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("не удалось получить случайную экспоненту: %w", err)
	}

	private := new(big.Int).SetBytes(buf)
	// экспонента не должна вырождаться
	if private.Sign() == 0 {
		private.SetInt64(1)
	}

	public := new(big.Int).Exp(modp3072Gen, private, modp3072Prime)
	return &Keypair{private: private, public: public}, nil
}

// PublicKey возвращает открытый ключ, дополненный до фиксированного размера
func (k *Keypair) PublicKey() [publicKeySize]byte {
	var out [publicKeySize]byte
	k.public.FillBytes(out[:])
	return out
}

// SharedSecret вычисляет общий секрет с открытым ключом удаленной стороны.
// Результат хешируется SHA-256 и пригоден как PSK.
func (k *Keypair) SharedSecret(peerPublic [publicKeySize]byte) ([]byte, error) {
	peer := new(big.Int).SetBytes(peerPublic[:])

	// открытый ключ обязан лежать в интервале (1, p-1)
	one := big.NewInt(1)
	pMinusOne := new(big.Int).Sub(modp3072Prime, one)
	if peer.Cmp(one) <= 0 || peer.Cmp(pMinusOne) >= 0 {
		return nil, fmt.Errorf("открытый ключ удаленной стороны вне допустимого интервала")
	}

	shared := new(big.Int).Exp(peer, k.private, modp3072Prime)

	var raw [publicKeySize]byte
	shared.FillBytes(raw[:])
	digest := sha256.Sum256(raw[:])
	return digest[:], nil
}
